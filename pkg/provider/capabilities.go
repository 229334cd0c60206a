package provider

// AuthType describes how a backend authenticates.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBasic  AuthType = "basic"
	AuthAPIKey AuthType = "api_key"
	AuthOAuth  AuthType = "oauth"
	AuthCustom AuthType = "custom"
)

// Capabilities is the static capability descriptor a backend type declares
// at registration time. It is the single source of truth consulted by the
// upload orchestrator to pick a transfer strategy; nothing probes adapter
// instances for optional behavior at call time.
type Capabilities struct {
	// SupportsDirectUpload means the backend can presign per-part upload
	// URLs so clients bypass the server relay. Adapters declaring this
	// must implement MultipartUploader.
	SupportsDirectUpload bool `json:"supports_direct_upload"`

	// SupportsFolders means the backend has a native folder concept (or a
	// faithful emulation, like S3 key prefixes).
	SupportsFolders bool `json:"supports_folders"`

	// SupportsResume means a failed multi-part upload can be resumed by
	// re-requesting only unconfirmed parts under the same upload id.
	SupportsResume bool `json:"supports_resume"`

	// AuthType is how the backend authenticates.
	AuthType AuthType `json:"auth_type"`
}
