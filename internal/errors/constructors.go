package errors

// Convenience constructors for common error patterns

func ConfigError(message string) *ErrorBuilder  { return NewError(CategoryConfig, message).Fatal() }
func ForgeError(message string) *ErrorBuilder   { return NewError(CategoryForge, message) }
func NetworkError(message string) *ErrorBuilder { return NewError(CategoryNetwork, message).Retryable() }
func AuthError(message string) *ErrorBuilder    { return NewError(CategoryAuth, message).Fatal() }
func StorageError(message string) *ErrorBuilder { return NewError(CategoryStorage, message) }
func TriggerError(message string) *ErrorBuilder { return NewError(CategoryTrigger, message) }
func EngineError(message string) *ErrorBuilder  { return NewError(CategoryEngine, message) }
func GitError(message string) *ErrorBuilder     { return NewError(CategoryGit, message) }

// Config errors

func ConfigNotFound(path string) *ClassifiedError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigRequired(field string) *ClassifiedError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

func ValidationFailed(field, reason string) *ClassifiedError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Pipeline errors

func StageFailed(stage string, cause error) *ClassifiedError {
	return Wrap(cause, CategoryInternal, SeverityFatal, "pipeline stage failed").
		WithContext("stage", stage)
}

func WorkspaceError(operation string, cause error) *ClassifiedError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "workspace operation failed").
		WithContext("operation", operation)
}

func EngineUnavailable(cause error) *ClassifiedError {
	return Wrap(cause, CategoryEngine, SeverityFatal, "compilation engine unavailable")
}

// Internal errors

func InternalError(message string, cause error) *ClassifiedError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
