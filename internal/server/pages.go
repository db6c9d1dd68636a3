package server

import (
	"net/http"
)

// successPage is shown in the login popup. It notifies the opener and closes itself.
const successPage = `<!DOCTYPE html>
<html>
<head>
    <title>Login Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #1DB954; color: white; }
        .container { text-align: center; }
        h1 { margin: 0 0 1rem 0; font-size: 1.5rem; }
        p { margin: 0; opacity: 0.8; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ Successfully connected to Spotify!</h1>
        <p>This window will close automatically...</p>
    </div>
    <script>
        try {
            if (window.opener && !window.opener.closed) {
                window.name = 'spotify-login-success';
                if (window.opener.spotifyLoginSuccess) {
                    window.opener.spotifyLoginSuccess();
                }
                localStorage.setItem('spotify-login-success', Date.now().toString());
            }
        } catch (e) {}
        setTimeout(function () { window.close(); }, 700);
    </script>
</body>
</html>
`

const errorPage = `<!DOCTYPE html>
<html>
<head>
    <title>Login Failed</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #e22134; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>There has been an error.</h1>
        <p>Close this window and try connecting to Spotify again.</p>
    </div>
</body>
</html>
`

// SuccessPage renders the post-login page.
func SuccessPage(w http.ResponseWriter, r *http.Request) {
	writeHTML(w, successPage)
}

// ErrorPage renders the login failure page.
func ErrorPage(w http.ResponseWriter, r *http.Request) {
	writeHTML(w, errorPage)
}

func writeHTML(w http.ResponseWriter, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(page))
}
