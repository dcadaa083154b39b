package models

type StackFrame struct {
	Name               string `json:"name,omitempty"`
	DeclaringNamespace string `json:"declaring_namespace,omitempty"`
	DeclaringType      string `json:"declaring_type,omitempty"`
	FileName           string `json:"file_name,omitempty"`
	LineNumber         int    `json:"line_number,omitempty"`
	Column             int    `json:"column,omitempty"`
}

type ErrorInfo struct {
	Type       string                 `json:"type,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Code       string                 `json:"code,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	StackTrace []StackFrame           `json:"stack_trace,omitempty"`
	Inner      *ErrorInfo             `json:"inner,omitempty"`
}

type UserInfo struct {
	Identity string                 `json:"identity,omitempty"`
	Name     string                 `json:"name,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

type UserDescription struct {
	EmailAddress string                 `json:"email_address,omitempty"`
	Description  string                 `json:"description,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
}

type ManualStackingInfo struct {
	Title     string            `json:"title,omitempty"`
	Signature map[string]string `json:"signature_data,omitempty"`
}
