package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *BookBuilderError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigRequired(field string) *BookBuilderError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

func ValidationFailed(field, reason string) *BookBuilderError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Manuscript errors

func ChapterNotFound(path string) *BookBuilderError {
	return New(CategoryChapter, SeverityFatal, "chapter source not found").
		WithContext("path", path)
}

func MacroError(file string, line int, cause error) *BookBuilderError {
	return Wrap(cause, CategoryMacro, SeverityFatal, "macro resolution failed").
		WithContext("file", file).
		WithContext("line", line)
}

func WeaveError(chapter, block string, cause error) *BookBuilderError {
	return Wrap(cause, CategoryWeave, SeverityFatal, "executable block failed").
		WithContext("chapter", chapter).
		WithContext("block", block)
}

// Build pipeline errors

func CompileError(target string, exitCode int, cause error) *BookBuilderError {
	return Wrap(cause, CategoryCompile, SeverityFatal, "document compiler failed").
		WithContext("target", target).
		WithToolExit(exitCode)
}

func WorkspaceError(operation string, cause error) *BookBuilderError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "workspace operation failed").
		WithContext("operation", operation)
}

// Runtime errors

func ServerError(operation string, cause error) *BookBuilderError {
	return Wrap(cause, CategoryServer, SeverityFatal, "preview server failed").
		WithContext("operation", operation)
}

// Internal errors

func InternalError(message string, cause error) *BookBuilderError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
