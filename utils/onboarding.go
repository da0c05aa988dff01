package utils

import (
	"slices"
	"sort"
	"strings"

	"SkinCoach/internal/model"
)

// ConcernOtherOption 表单上"其他"选项，选中后必须填写 concern_other
const ConcernOtherOption = "Other"

// PredefinedConcerns 预置的 10 项皮肤问题，不在其中的都视为自定义
var PredefinedConcerns = []string{
	"Acne",
	"Redness",
	"Hyperpigmentation",
	"Fine Lines & Wrinkles",
	"Dryness",
	"Excess Oil",
	"Enlarged Pores",
	"Dullness",
	"Sensitivity",
	"Dark Circles",
}

// SkinTypeOptions 第二步可选的肤质
var SkinTypeOptions = []string{
	"Dry",
	"Oily",
	"Combination",
	"Normal",
	"Sensitive",
}

// IsPredefinedConcern 是否为预置问题
func IsPredefinedConcern(concern string) bool {
	return slices.Contains(PredefinedConcerns, concern)
}

func IsSkinTypeOption(skinType string) bool {
	return slices.Contains(SkinTypeOptions, skinType)
}

// StepRank 步骤在规范顺序中的下标，未知步骤排在所有已知步骤之后
func StepRank(step model.StepID) int {
	for i, id := range model.StepOrder {
		if id == step {
			return i
		}
	}
	return len(model.StepOrder)
}

// IncompleteStepIndex 返回规范顺序中第一个未完成步骤的下标。
// 全部完成时返回最后一步的下标而不是越界值。
func IncompleteStepIndex(completed []model.StepID) int {
	for i, id := range model.StepOrder {
		if !slices.Contains(completed, id) {
			return i
		}
	}
	return len(model.StepOrder) - 1
}

// MergeCompletedSteps 把新完成的步骤并入已有集合并按规范顺序排序。
// 只增不减，重复合并结果不变。
func MergeCompletedSteps(existing, newlyCompleted []model.StepID) []model.StepID {
	merged := make([]model.StepID, 0, len(existing)+len(newlyCompleted))
	seen := make(map[model.StepID]struct{}, len(existing)+len(newlyCompleted))

	for _, list := range [][]model.StepID{existing, newlyCompleted} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return StepRank(merged[i]) < StepRank(merged[j])
	})

	return merged
}

// NormalizeUKPhone 把 +44 开头的号码转回本地格式 0 开头，其他号码原样返回
func NormalizeUKPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if strings.HasPrefix(phone, "+44") {
		return "0" + strings.TrimSpace(strings.TrimPrefix(phone, "+44"))
	}
	return phone
}

// SplitConcerns 按预置列表拆分，自定义项用 ", " 拼成一个字符串
func SplitConcerns(concerns []string) (predefined []string, other string) {
	var custom []string
	for _, c := range concerns {
		c = strings.TrimSpace(c)
		if c == "" || c == ConcernOtherOption {
			continue
		}
		if IsPredefinedConcern(c) {
			predefined = append(predefined, c)
		} else {
			custom = append(custom, c)
		}
	}

	if len(custom) > 0 {
		predefined = append(predefined, ConcernOtherOption)
	}
	return predefined, strings.Join(custom, ", ")
}

// FlattenConcerns 提交前把表单值还原成扁平列表：
// 保留预置项的顺序，自定义内容追加在最后。
// concern_other 与 stored 中自定义项的 ", " 拼接结果一致时还原为原来的多项，
// 否则整段文字作为一项，不按逗号拆分用户输入。
func FlattenConcerns(concerns []string, other string, stored []string) []string {
	flat := make([]string, 0, len(concerns)+1)
	otherSelected := false
	for _, c := range concerns {
		if c == ConcernOtherOption {
			otherSelected = true
			continue
		}
		flat = append(flat, c)
	}

	other = strings.TrimSpace(other)
	if !otherSelected || other == "" {
		return flat
	}

	if _, storedOther := SplitConcerns(stored); storedOther != "" && storedOther == other {
		for _, c := range stored {
			if c = strings.TrimSpace(c); c != "" && c != ConcernOtherOption && !IsPredefinedConcern(c) {
				flat = append(flat, c)
			}
		}
		return flat
	}

	return append(flat, other)
}

// MapProfileToFormValues 把已保存的资料投影成表单字段
func MapProfileToFormValues(p *model.UserProfile) model.FormValues {
	if p == nil {
		return model.FormValues{}
	}

	concerns, other := SplitConcerns(p.Concerns)

	values := model.FormValues{
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Email:          p.Email,
		PhoneNumber:    NormalizeUKPhone(p.PhoneNumber),
		DateOfBirth:    p.DateOfBirth,
		SkinTypes:      slices.Clone(p.SkinTypes),
		Concerns:       concerns,
		ConcernOther:   other,
		AllergyDetails: p.AllergyDetails,
	}

	// 第四步未完成时保持未选择状态
	if p.HasCompleted(model.StepAllergies) || p.HasAllergies {
		hasAllergies := p.HasAllergies
		values.HasAllergies = &hasAllergies
	}

	return values
}
