package model

import "time"

// UserProfile 远端资料服务返回的完整资料记录（camelCase 与远端保持一致）
type UserProfile struct {
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
	ID                  string     `json:"id"`
	FirstName           string     `json:"firstName"`
	LastName            string     `json:"lastName"`
	Email               string     `json:"email"`
	PhoneNumber         string     `json:"phoneNumber"`
	DateOfBirth         string     `json:"dateOfBirth"`
	AllergyDetails      string     `json:"allergyDetails,omitempty"`
	SkinTypes           []string   `json:"skinTypes"`
	Concerns            []string   `json:"concerns"`
	CompletedSteps      []StepID   `json:"completedSteps"`
	HasAllergies        bool       `json:"hasAllergies"`
	IsSubscribed        bool       `json:"isSubscribed"`
	HasCompletedBooking bool       `json:"hasCompletedBooking"`
	IsCompleted         bool       `json:"isCompleted"`
}

// HasCompleted 是否已完成某一步
func (p *UserProfile) HasCompleted(step StepID) bool {
	for _, s := range p.CompletedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// CreateProfileRequest 第一步创建资料的请求体
type CreateProfileRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	DateOfBirth string `json:"dateOfBirth"`
}

// ProfileUpdate PATCH 请求体，只发送本步骤的新字段，nil 表示不修改
type ProfileUpdate struct {
	FirstName           *string    `json:"firstName,omitempty"`
	LastName            *string    `json:"lastName,omitempty"`
	Email               *string    `json:"email,omitempty"`
	PhoneNumber         *string    `json:"phoneNumber,omitempty"`
	DateOfBirth         *string    `json:"dateOfBirth,omitempty"`
	SkinTypes           []string   `json:"skinTypes,omitempty"`
	Concerns            []string   `json:"concerns,omitempty"`
	HasAllergies        *bool      `json:"hasAllergies,omitempty"`
	AllergyDetails      *string    `json:"allergyDetails,omitempty"`
	IsSubscribed        *bool      `json:"isSubscribed,omitempty"`
	HasCompletedBooking *bool      `json:"hasCompletedBooking,omitempty"`
	IsCompleted         *bool      `json:"isCompleted,omitempty"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
	CompletedSteps      []StepID   `json:"completedSteps,omitempty"`
}

// ExistenceResult 邮箱/手机号存在性检查结果
type ExistenceResult struct {
	Exists bool   `json:"exists"`
	Field  string `json:"field,omitempty"`
}

// FormValues 向导表单字段，snake_case 面向浏览器
type FormValues struct {
	FirstName      string   `json:"first_name"`
	LastName       string   `json:"last_name"`
	Email          string   `json:"email"`
	PhoneNumber    string   `json:"phone_number"`
	DateOfBirth    string   `json:"date_of_birth"`
	ConcernOther   string   `json:"concern_other"`
	AllergyDetails string   `json:"allergy_details"`
	SkinTypes      []string `json:"skin_types"`
	Concerns       []string `json:"concerns"`
	HasAllergies   *bool    `json:"has_allergies,omitempty"`
}
