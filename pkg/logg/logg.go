package logg

const (
	Layer     = "layer"
	Operation = "operation"
	Selector  = "selector"
	URL       = "url"
	ChatID    = "chat_id"
	State     = "state"
	Attempt   = "attempt"
	Instance  = "instance"
	Path      = "path"
)
