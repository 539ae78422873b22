package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldErrorType  = "error_type"
	FieldOperation  = "operation"
	FieldIntent     = "intent"
	FieldBudgetID   = "budget_id"
	FieldExpenseID  = "expense_id"
	FieldAmount     = "amount"
	FieldStrategy   = "strategy"
	FieldVersion    = "version"
	FieldBudgets    = "budgets"
	FieldExpenses   = "expenses"
	FieldCount      = "count"
	FieldKind       = "kind"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentStorage   = "storage"
	ComponentBackup    = "backup"
	ComponentOCR       = "ocr"
	ComponentAMQP      = "amqp"
	ComponentNotifier  = "notifier"
	ComponentCache     = "cache"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
	ComponentCLI       = "cli"
)

// Operations defines standard operation names
const (
	OpDispatch = "dispatch"
	OpLoad     = "load"
	OpSave     = "save"
	OpResolve  = "resolve"
	OpImport   = "import"
	OpExport   = "export"
	OpExtract  = "extract"
	OpPublish  = "publish"
	OpConsume  = "consume"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeResolution    = "resolution_error"
	ErrorTypeImport        = "import_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeTimeout       = "timeout_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error message and, when given, its category
func (f LogFields) WithError(err error, errorType ...string) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		if len(errorType) > 0 {
			f[FieldErrorType] = errorType[0]
		}
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithIntent adds the name of a dispatched intent
func (f LogFields) WithIntent(name string) LogFields {
	f[FieldIntent] = name
	return f
}

// WithCounts adds collection sizes after a state change
func (f LogFields) WithCounts(budgets, expenses int) LogFields {
	f[FieldBudgets] = budgets
	f[FieldExpenses] = expenses
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
