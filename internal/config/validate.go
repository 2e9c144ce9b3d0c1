package config

import (
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	xerrors "AgentFlow/internal/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateQueue, QueueConfig{})
	return v
}

// validateQueue 要求所选驱动的连接参数已填写。
func validateQueue(sl validator.StructLevel) {
	queue := sl.Current().Interface().(QueueConfig)
	switch queue.Driver {
	case "redis":
		if strings.TrimSpace(queue.Redis.Address) == "" {
			sl.ReportError(queue.Redis.Address, "Redis.Address", "Address", "required_for_driver", queue.Driver)
		}
	case "rabbitmq":
		if strings.TrimSpace(queue.RabbitMQ.URL) == "" {
			sl.ReportError(queue.RabbitMQ.URL, "RabbitMQ.URL", "URL", "required_for_driver", queue.Driver)
		}
	}
}

// Validate 校验配置取值，失败时返回 INVALID_ARGUMENT 错误并列出全部问题字段。
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !stdErrors.As(err, &fieldErrs) {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "validate config")
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problem := fmt.Sprintf("%s failed %s", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag())
		if fe.Param() != "" {
			problem += "=" + fe.Param()
		}
		problems = append(problems, problem)
	}
	return xerrors.New(xerrors.CodeInvalidArgument, "invalid config: "+strings.Join(problems, "; "))
}
