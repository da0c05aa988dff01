package wizard

import (
	"fmt"

	"SkinCoach/internal/model"
)

// StepKind 决定由哪个表单控制器处理该步骤
type StepKind int

const (
	KindPersonal StepKind = iota + 1
	KindSkinType
	KindConcerns
	KindAllergies
	KindSubscribe
	KindBooking
)

var kindNames = map[StepKind]string{
	KindPersonal:  "personal",
	KindSkinType:  "skin-type",
	KindConcerns:  "concerns",
	KindAllergies: "allergies",
	KindSubscribe: "subscribe",
	KindBooking:   "booking",
}

func (k StepKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText 序列化为组件标签
func (k StepKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText 从组件标签解析
func (k *StepKind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown step component %q", string(text))
}

// StepMeta 单个步骤的静态描述
type StepMeta struct {
	ID       model.StepID `json:"id"`
	Slug     string       `json:"slug"`
	Headline string       `json:"headline"`
	Copy     string       `json:"copy"`
	Kind     StepKind     `json:"component"`
}

// DefaultSteps 返回本次页面加载使用的步骤表，关闭预约时只有 5 步
func DefaultSteps(bookingEnabled bool) []StepMeta {
	steps := []StepMeta{
		{
			ID:       model.StepPersonal,
			Slug:     "about-you",
			Headline: "Let's get to know you",
			Copy:     "Tell us a little about yourself so your coach can personalise your plan.",
			Kind:     KindPersonal,
		},
		{
			ID:       model.StepSkinType,
			Slug:     "skin-type",
			Headline: "What's your skin type?",
			Copy:     "Select every option that describes your skin on a typical day.",
			Kind:     KindSkinType,
		},
		{
			ID:       model.StepSkinConcerns,
			Slug:     "concerns",
			Headline: "What would you like to work on?",
			Copy:     "Choose your main skin concerns. Pick Other to tell us about anything else.",
			Kind:     KindConcerns,
		},
		{
			ID:       model.StepAllergies,
			Slug:     "allergies",
			Headline: "Any allergies or sensitivities?",
			Copy:     "We'll make sure nothing in your routine causes a reaction.",
			Kind:     KindAllergies,
		},
		{
			ID:       model.StepSubscribe,
			Slug:     "subscribe",
			Headline: "Start your membership",
			Copy:     "Unlock one-to-one coaching and your personalised routine.",
			Kind:     KindSubscribe,
		},
	}

	if bookingEnabled {
		steps = append(steps, StepMeta{
			ID:       model.StepBooking,
			Slug:     "booking",
			Headline: "Book your first consultation",
			Copy:     "Pick a time that suits you to meet your skin coach.",
			Kind:     KindBooking,
		})
	}

	return steps
}

// IndexOfKind 返回第一个该类型步骤的下标，不存在返回 -1
func IndexOfKind(steps []StepMeta, kind StepKind) int {
	for i, s := range steps {
		if s.Kind == kind {
			return i
		}
	}
	return -1
}
