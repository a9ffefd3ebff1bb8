// Package protocol implements the HTTP/JSON client for the interactive session service.
//
// The package only translates intents into requests. It does not track session state,
// poll, or retry; that is the job of the session package.
//
// # Endpoints
//
//	POST   {base}/sessions                               create a session
//	GET    {base}/sessions/{id}                          session status
//	GET    {base}/sessions/{id}/log?from=N&size=M        session log lines
//	POST   {base}/sessions/{id}/statements               submit a statement
//	GET    {base}/sessions/{id}/statements/{sid}         statement status and output
//	POST   {base}/sessions/{id}/statements/{sid}/cancel  cancel a statement
//	DELETE {base}/sessions/{id}                          kill a session
//
// # Errors
//
// Any non-2xx response is returned as a *RemoteRequestError carrying the method, URL,
// status code and response body. Transport failures are wrapped with %w. Interpreting a
// status code (a 404 on poll meaning "already gone", for example) is left to callers.
//
// # Usage
//
//	c := protocol.NewClient("http://livy:8998", protocol.WithBasicAuth("user", "secret"))
//	s, err := c.CreateSession(ctx, protocol.CreateSessionRequest{Kind: protocol.KindSpark})
//	if err != nil {
//	    return err
//	}
//	st, err := c.SubmitStatement(ctx, s.ID, protocol.StatementRequest{Code: "1+1"})
package protocol
