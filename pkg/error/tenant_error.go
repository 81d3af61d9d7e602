package error

import "net/http"

// TenantNotConfiguredError covers the "no session, no channel account, no
// token" family: the caller sees a 400-style response, never a silent
// fallback to a process-wide token.
type TenantNotConfiguredError string

func (err TenantNotConfiguredError) Error() string {
	return string(err)
}

func (err TenantNotConfiguredError) ErrCode() string {
	return "TENANT_NOT_CONFIGURED"
}

func (err TenantNotConfiguredError) StatusCode() int {
	return http.StatusBadRequest
}

type ConfigError string

func (err ConfigError) Error() string {
	return string(err)
}

func (err ConfigError) ErrCode() string {
	return "CONFIG_ERROR"
}

func (err ConfigError) StatusCode() int {
	return http.StatusBadRequest
}
