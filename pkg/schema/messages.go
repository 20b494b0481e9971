package schema

// Action selects the handler for an inbound request.
type Action string

const (
	ActionStatus    Action = "status"
	ActionScan      Action = "scan"
	ActionSetFolder Action = "set_folder"
	ActionLoad      Action = "load"
	ActionLoadAll   Action = "load_all"
	ActionUnload    Action = "unload"
	ActionUnloadAll Action = "unload_all"
)

// Actions lists every action the dispatcher understands.
var Actions = []Action{
	ActionStatus,
	ActionScan,
	ActionSetFolder,
	ActionLoad,
	ActionLoadAll,
	ActionUnload,
	ActionUnloadAll,
}

// ResponseType tags an outbound response.
type ResponseType string

const (
	TypeStatus          ResponseType = "status"
	TypeExtensionsList  ResponseType = "extensions_list"
	TypeFolderSet       ResponseType = "folder_set"
	TypeLoadResult      ResponseType = "load_result"
	TypeLoadAllResult   ResponseType = "load_all_result"
	TypeUnloadResult    ResponseType = "unload_result"
	TypeUnloadAllResult ResponseType = "unload_all_result"
	TypeError           ResponseType = "error"
)

// Request is an inbound message from the browser side.
type Request struct {
	Action Action `json:"action"`
	Path   string `json:"path,omitempty"`
}

// StatusResponse answers ActionStatus.
type StatusResponse struct {
	Type            ResponseType `json:"type"`
	Version         string       `json:"version"`
	ExtensionFolder string       `json:"extensionFolder"`
	FirefoxPath     string       `json:"firefoxPath"`
	WatchEnabled    bool         `json:"watchEnabled"`
	LoaderAvailable bool         `json:"loaderAvailable"`
	LoadedCount     int          `json:"loadedCount"`
	Loaded          []LoadedInfo `json:"loaded"`
	Watch           *WatchState  `json:"watch,omitempty"`
}

// ExtensionsListResponse answers ActionScan.
type ExtensionsListResponse struct {
	Type            ResponseType          `json:"type"`
	ExtensionFolder string                `json:"extensionFolder"`
	Extensions      []ExtensionDescriptor `json:"extensions"`
	Skipped         []SkippedEntry        `json:"skipped"`
}

// FolderSetResponse answers ActionSetFolder.
type FolderSetResponse struct {
	Type            ResponseType          `json:"type"`
	Success         bool                  `json:"success"`
	ExtensionFolder string                `json:"extensionFolder"`
	Persisted       bool                  `json:"persisted"`
	Extensions      []ExtensionDescriptor `json:"extensions"`
	Message         string                `json:"message,omitempty"`
}

// LoadResult answers ActionLoad. Items inside a BatchResult leave Type empty.
type LoadResult struct {
	Type        ResponseType `json:"type,omitempty"`
	Success     bool         `json:"success"`
	Path        string       `json:"path"`
	Method      LoadMethod   `json:"method,omitempty"`
	ProfilePath string       `json:"profilePath,omitempty"`
	Browser     string       `json:"browser,omitempty"`
	PID         int          `json:"pid,omitempty"`
	Code        string       `json:"code,omitempty"`
	Message     string       `json:"message,omitempty"`
}

// UnloadResult answers ActionUnload.
type UnloadResult struct {
	Type    ResponseType `json:"type,omitempty"`
	Success bool         `json:"success"`
	Path    string       `json:"path"`
	Code    string       `json:"code,omitempty"`
	Message string       `json:"message,omitempty"`
}

// BatchResult answers ActionLoadAll and ActionUnloadAll. Success is true only
// when no item failed.
type BatchResult[T any] struct {
	Type      ResponseType `json:"type"`
	Success   bool         `json:"success"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Results   []T          `json:"results"`
}

// ErrorResponse reports a request that could not be handled at all.
type ErrorResponse struct {
	Type      ResponseType `json:"type"`
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	RequestID string       `json:"requestId,omitempty"`
}

// NewErrorResponse converts err into an ErrorResponse, keeping its code when it is a BridgeError.
func NewErrorResponse(err error, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Type:      TypeError,
		Code:      CodeOf(err),
		Message:   err.Error(),
		RequestID: requestID,
	}
}
