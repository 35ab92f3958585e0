package auth

// loginForm is the posted login form.
type loginForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

type loginPageData struct {
	Form   loginForm
	Next   string
	Errors map[string]string
}

const (
	msgEmailRequired      = "Email is required"
	msgEmailInvalid       = "Please enter a valid email address"
	msgPasswordRequired   = "Password is required"
	msgInvalidCredentials = "Invalid email or password"
	msgLoginUnavailable   = "Unable to sign in right now. Please try again."
)

var loginMessages = map[string]string{
	"email.required":    msgEmailRequired,
	"email.email":       msgEmailInvalid,
	"password.required": msgPasswordRequired,
}
