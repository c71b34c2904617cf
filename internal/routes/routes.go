package routes

const (
	Health = "/health"
	Ping   = "/api/v1/ping"

	IntakeSessions  = "/api/v1/intake/sessions"
	IntakeCurrent   = "/api/v1/intake/sessions/current"
	IntakeContact   = "/api/v1/intake/sessions/current/contact"
	IntakeOTP       = "/api/v1/intake/sessions/current/otp"
	IntakeOTPResend = "/api/v1/intake/sessions/current/otp/resend"
	IntakeFiles     = "/api/v1/intake/sessions/current/files"
	IntakeFile      = "/api/v1/intake/sessions/current/files/{fileID}"
	IntakeUpload    = "/api/v1/intake/sessions/current/upload"
	IntakeReset     = "/api/v1/intake/sessions/current/reset"

	NotifyNewLead = "/api/v1/notify_new_lead"
)
