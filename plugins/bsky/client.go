package bsky

import (
	"context"
	"net/http"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/xrpc"

	"github.com/geosift/geosift/errors"
	"github.com/geosift/geosift/internal/httpclient"
)

const requestTimeout = 30 * time.Second

// defaultHTTPClient is the guarded transport XRPC requests go through.
// The host is a user-configured URL, so dial-time private address
// blocking applies to every call made on a target's behalf.
func defaultHTTPClient() *http.Client {
	return httpclient.NewSaferClient(requestTimeout).Client
}

// createSession authenticates against a PDS with an app password and
// loads the session tokens into the client.
func createSession(ctx context.Context, client *xrpc.Client, identifier, appPassword string) (string, error) {
	session, err := comatproto.ServerCreateSession(ctx, client, &comatproto.ServerCreateSession_Input{
		Identifier: identifier,
		Password:   appPassword,
	})
	if err != nil {
		return "", errors.Wrapf(err, "creating session with %s for %s", client.Host, identifier)
	}

	client.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}
	return session.Did, nil
}

// resolveHandle resolves a handle to its DID.
func resolveHandle(ctx context.Context, client *xrpc.Client, handle string) (string, error) {
	resp, err := comatproto.IdentityResolveHandle(ctx, client, handle)
	if err != nil {
		return "", errors.Wrapf(err, "resolving handle %s", handle)
	}
	return resp.Did, nil
}
