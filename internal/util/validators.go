package util

import (
	"regexp"
	"ztuff-backend/internal/model"

	"github.com/go-playground/validator/v10"
)

var reasonCodePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,31}$`)

// ValidateReasonCode 退货原因代码：小写字母、数字和下划线
func ValidateReasonCode(fl validator.FieldLevel) bool {
	return IsReasonCode(fl.Field().String())
}

func IsReasonCode(code string) bool {
	return reasonCodePattern.MatchString(code)
}

// ValidateDisposition 处置方式
func ValidateDisposition(fl validator.FieldLevel) bool {
	switch model.Disposition(fl.Field().String()) {
	case model.DispositionRestock, model.DispositionRepair, model.DispositionSalvage,
		model.DispositionDispose, model.DispositionReturnToSupplier:
		return true
	}
	return false
}

// ValidateItemCondition 质检成色
func ValidateItemCondition(fl validator.FieldLevel) bool {
	switch model.ItemCondition(fl.Field().String()) {
	case model.ConditionNew, model.ConditionLikeNew, model.ConditionGood,
		model.ConditionFair, model.ConditionPoor, model.ConditionDamaged:
		return true
	}
	return false
}

// RegisterValidators 注册自定义校验规则
func RegisterValidators(v *validator.Validate) {
	v.RegisterValidation("reason_code", ValidateReasonCode)
	v.RegisterValidation("disposition", ValidateDisposition)
	v.RegisterValidation("item_condition", ValidateItemCondition)
}
