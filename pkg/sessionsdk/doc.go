/*
Package sessionsdk is the client-side session core of the Brewhouse storefront.

# Overview

The package keeps a shopper logged in across application restarts. It holds a
short-lived access credential, renews it through the identity service's
long-lived renewal ticket (an HTTP-only cookie the client never reads), and
retries authenticated requests once after renewal.

# SDKClient vs Session

The package is organized around two main types:

  - SDKClient: stateless calls to the identity service (register, login,
    whoami, renew, end session). Its cookie jar carries the renewal ticket.
  - Session: the single holder of session state. All changes to the current
    user, credential and loading flag go through it.

Create both once at startup, then bootstrap:

	client := sessionsdk.NewSDKClient("https://shop.example.com")
	session := sessionsdk.NewSession(client, storage)

	live := sessionsdk.NewLiveness()
	defer live.Kill()

	state, err := session.Bootstrap(ctx, live)
	if state.Authenticated() {
		fmt.Println("welcome back,", state.User.Name)
	}

Log in, remembering the credential in durable storage:

	_, err := session.Login(ctx, "a@x.com", "Espresso#1", true)

Call a protected API. A 401 renews the credential once and retries once:

	var orders []Order
	err := session.AuthedJSON(ctx, http.MethodGet, "/api/orders", nil, &orders)
	if errors.Is(err, sessionsdk.ErrSessionExpired) {
		// send the shopper to the login page
	}

# Remember Me

The remember flag only decides whether the access credential is mirrored to
Storage under AccessTokenKey. Without it the credential lives in memory and
the next run resumes through the renewal ticket instead. Use a PersistentJar
as the client's cookie jar to keep that ticket across process restarts.

# Renewal

Concurrent requests that hit a 401 at the same time share one renewal. A
rejected renewal ticket ends the session; network failures during renewal do
not. Either way the caller gets ErrSessionExpired.

# Error Handling

Every operation returns *Error. Match classes with errors.Is against the
sentinels (ErrAuth, ErrValidation, ErrNetwork, ...) and show FriendlyMessage
to shoppers.

# Thread Safety

SDKClient and Session are safe for concurrent use.
*/
package sessionsdk
