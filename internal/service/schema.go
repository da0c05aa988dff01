package service

import (
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"SkinCoach/utils"
)

// PersonalForm 第一步：个人信息
type PersonalForm struct {
	FirstName   string `json:"first_name" validate:"required,max=50,personname"`
	LastName    string `json:"last_name" validate:"required,max=50,personname"`
	Email       string `json:"email" validate:"required,email,max=254"`
	PhoneNumber string `json:"phone_number" validate:"required,ukphone"`
	DateOfBirth string `json:"date_of_birth" validate:"required,dob"`
}

// SkinTypeForm 第二步：肤质，至少选一项
type SkinTypeForm struct {
	SkinTypes []string `json:"skin_types" validate:"required,min=1,unique,dive,skintype"`
}

// ConcernsForm 第三步：皮肤困扰，选了 Other 时必须填写 concern_other
type ConcernsForm struct {
	Concerns     []string `json:"concerns" validate:"required,min=1,unique,dive,concern"`
	ConcernOther string   `json:"concern_other" validate:"max=500"`
}

// AllergiesForm 第四步：过敏，has_allergies 为 true 时必须填写详情
type AllergiesForm struct {
	HasAllergies   *bool  `json:"has_allergies" validate:"required"`
	AllergyDetails string `json:"allergy_details" validate:"max=1000"`
}

var personNamePattern = regexp.MustCompile(`^[\p{L}][\p{L} '\-]*$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
	// 测试中替换，用于固定出生日期校验的基准时间
	validationNow = time.Now
)

// Validator 返回注册了业务规则的校验器
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		// 错误字段使用 json 名，前端按字段名展示
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		_ = v.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
			return personNamePattern.MatchString(strings.TrimSpace(fl.Field().String()))
		})
		_ = v.RegisterValidation("ukphone", func(fl validator.FieldLevel) bool {
			return utils.ValidateUKPhone(fl.Field().String())
		})
		_ = v.RegisterValidation("dob", func(fl validator.FieldLevel) bool {
			return utils.ValidateDateOfBirth(fl.Field().String(), validationNow())
		})
		_ = v.RegisterValidation("skintype", func(fl validator.FieldLevel) bool {
			return utils.IsSkinTypeOption(fl.Field().String())
		})
		_ = v.RegisterValidation("concern", func(fl validator.FieldLevel) bool {
			c := fl.Field().String()
			return c == utils.ConcernOtherOption || utils.IsPredefinedConcern(c)
		})

		v.RegisterStructValidation(validateConcernsForm, ConcernsForm{})
		v.RegisterStructValidation(validateAllergiesForm, AllergiesForm{})

		validate = v
	})
	return validate
}

func validateConcernsForm(sl validator.StructLevel) {
	f := sl.Current().Interface().(ConcernsForm)
	for _, c := range f.Concerns {
		if c == utils.ConcernOtherOption && strings.TrimSpace(f.ConcernOther) == "" {
			sl.ReportError(f.ConcernOther, "concern_other", "ConcernOther", "concernother", "")
			return
		}
	}
}

func validateAllergiesForm(sl validator.StructLevel) {
	f := sl.Current().Interface().(AllergiesForm)
	if f.HasAllergies != nil && *f.HasAllergies && strings.TrimSpace(f.AllergyDetails) == "" {
		sl.ReportError(f.AllergyDetails, "allergy_details", "AllergyDetails", "allergydetails", "")
	}
}

var fieldMessages = map[string]string{
	"required":       "This field is required",
	"email":          "Please enter a valid email address",
	"personname":     "Only letters, spaces, hyphens and apostrophes are allowed",
	"ukphone":        "Please enter a valid UK phone number",
	"dob":            "Please enter a valid date of birth (you must be at least 16)",
	"skintype":       "Please choose from the listed skin types",
	"concern":        "Please choose from the listed concerns",
	"unique":         "Each option can only be selected once",
	"concernother":   "Please describe your other concern",
	"allergydetails": "Please tell us about your allergies",
	"oneof":          "Please choose one of the allowed options",
}

// validateForm 校验表单，失败时返回字段 → 提示的 ValidationError
func validateForm(form interface{}) error {
	err := Validator().Struct(form)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fieldName(fe)
		if _, exists := fields[field]; exists {
			continue
		}
		fields[field] = messageFor(fe)
	}
	return &ValidationError{Fields: fields}
}

// fieldName dive 出来的元素错误归到切片字段本身，如 skin_types[0] → skin_types
func fieldName(fe validator.FieldError) string {
	name := fe.Field()
	if i := strings.IndexByte(name, '['); i > 0 {
		name = name[:i]
	}
	return name
}

func messageFor(fe validator.FieldError) string {
	if msg, ok := fieldMessages[fe.Tag()]; ok {
		if fe.Tag() == "required" && fe.Kind() == reflect.Slice {
			return "Please select at least one option"
		}
		return msg
	}

	switch fe.Tag() {
	case "min":
		if fe.Kind() == reflect.Slice {
			return "Please select at least one option"
		}
		return "This field is too short"
	case "max":
		return "This field is too long"
	default:
		return "This field is invalid"
	}
}
