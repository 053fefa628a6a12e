package hostfunc

// The request types describe the args map each function reads; the
// response types are what the functions return.

// HTTP types

type HTTPRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Body    string            `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type HTTPResponse struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// DNS types

type DNSLookupRequest struct {
	Host string `json:"host"`
}

type DNSLookupResponse struct {
	Host      string   `json:"host"`
	Addresses []string `json:"addresses"`
}

// Probe types

type ProbeRequest struct {
	Address   string `json:"address"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

type ProbeResponse struct {
	Address   string `json:"address"`
	Reachable bool   `json:"reachable"`
	RTTMs     int64  `json:"rtt_ms"`
	Error     string `json:"error,omitempty"`
}
