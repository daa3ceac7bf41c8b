package models

// SelectDetectorRequest is the query of GET /detector/select.
type SelectDetectorRequest struct {
	SysName string `query:"sysName" validate:"required,max=128"`
}

// PluginRequest addresses one plugin by GUID in the path.
type PluginRequest struct {
	GUID string `param:"guid" validate:"required,max=128"`
}

// ControlResult is the outcome of a control operation.
type ControlResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	SysName string `json:"sysName,omitempty"`
}
