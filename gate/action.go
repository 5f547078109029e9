package gate

// Action is the operation requested on a resource. Besides the CRUD verbs,
// workflow steps such as "submit" or "validate" are plain actions too.
type Action string

const (
	ActionView     Action = "view"
	ActionList     Action = "list"
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionUpload   Action = "upload"
	ActionRectify  Action = "rectify"
	ActionDownload Action = "download"
	ActionManage   Action = "manage"
)
