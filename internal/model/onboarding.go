package model

// StepID 引导步骤标识，写入资料的 completedSteps
type StepID string

const (
	StepPersonal     StepID = "PERSONAL"
	StepSkinType     StepID = "SKIN_TYPE"
	StepSkinConcerns StepID = "SKIN_CONCERNS"
	StepAllergies    StepID = "ALLERGIES"
	StepSubscribe    StepID = "SUBSCRIBE"
	StepBooking      StepID = "BOOKING"
)

// StepOrder 规范顺序，合并与"第一个未完成步骤"都以此为准，不要修改
var StepOrder = []StepID{
	StepPersonal,
	StepSkinType,
	StepSkinConcerns,
	StepAllergies,
	StepSubscribe,
	StepBooking,
}

// Valid 是否为已知步骤
func (s StepID) Valid() bool {
	for _, id := range StepOrder {
		if id == s {
			return true
		}
	}
	return false
}

// OnboardingSteps 表示各个引导步骤的完成情况。
type OnboardingSteps struct {
	Personal     bool `json:"personal"`
	SkinType     bool `json:"skin_type"`
	SkinConcerns bool `json:"skin_concerns"`
	Allergies    bool `json:"allergies"`
	Subscribe    bool `json:"subscribe"`
	Booking      bool `json:"booking"`
}

// OnboardingProgressData 表示引导进度接口的响应数据。
type OnboardingProgressData struct {
	ProfileID      string          `json:"profile_id"`
	CurrentStep    StepID          `json:"current_step"`
	CompletedSteps []StepID        `json:"completed_steps"`
	Steps          OnboardingSteps `json:"steps"`
	CurrentIndex   int             `json:"current_index"`
	Finished       bool            `json:"finished"`
}

// NewOnboardingSteps 根据已完成列表构造勾选状态
func NewOnboardingSteps(completed []StepID) OnboardingSteps {
	var steps OnboardingSteps
	for _, id := range completed {
		switch id {
		case StepPersonal:
			steps.Personal = true
		case StepSkinType:
			steps.SkinType = true
		case StepSkinConcerns:
			steps.SkinConcerns = true
		case StepAllergies:
			steps.Allergies = true
		case StepSubscribe:
			steps.Subscribe = true
		case StepBooking:
			steps.Booking = true
		}
	}
	return steps
}
