package utils

import (
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
)

const (
	DateOfBirthLayout = "2006-01-02"
	MinimumAge        = 16
	MaximumAge        = 120
)

// ValidateUKPhone 校验英国手机号，接受 07… 与 +447… 两种写法
func ValidateUKPhone(phone string) bool {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return false
	}

	num, err := phonenumbers.Parse(phone, "GB")
	if err != nil {
		return false
	}

	return phonenumbers.IsValidNumberForRegion(num, "GB")
}

// ToE164UKPhone 转成远端存储用的 +44 格式，解析失败原样返回
func ToE164UKPhone(phone string) string {
	num, err := phonenumbers.Parse(strings.TrimSpace(phone), "GB")
	if err != nil {
		return phone
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// ValidateDateOfBirth 出生日期必须是过去的日期，且年龄在合理范围内
func ValidateDateOfBirth(dob string, now time.Time) bool {
	t, err := time.Parse(DateOfBirthLayout, dob)
	if err != nil {
		return false
	}

	if !t.Before(now) {
		return false
	}

	age := AgeAt(t, now)
	return age >= MinimumAge && age <= MaximumAge
}

// AgeAt 计算 now 时刻的周岁
func AgeAt(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}
