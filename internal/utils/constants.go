package utils

const (
	OrganizationName                      = "2nd Opinion Construction"
	CORSLowSecurityAllowedOriginLocalhost = "http://localhost:*"

	// Addresses ending in this suffix never receive mail; a fixed code is
	// stored for them so integration runs can complete the flow.
	TestEmailSuffix = "@testing.2ndopinionconstruction.com"
	TestEmailCode   = "424242"
)
