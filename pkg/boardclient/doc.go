// Package boardclient provides a Go SDK for a task-board HTTP server.
//
// Unlike a generated-client SDK, this one talks to the board's REST
// surface directly with net/http, since the board's API is small and
// stable enough not to need an OpenAPI-generated layer.
//
// # Basic Usage
//
//	c := boardclient.New("http://localhost:8080")
//
//	resp, err := c.CreateTask(ctx, boardclient.CreateTaskRequest{
//	    FnName: "compute",
//	    Class:  "secondary",
//	})
//
// # WebSocket Events
//
//	if err := c.ConnectWebSocket(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.CloseWebSocket()
//
//	for event := range c.Events() {
//	    fmt.Printf("event: %s\n", event.Type)
//	}
//
// # Configuration
//
//	c := boardclient.New("http://localhost:8080",
//	    boardclient.WithAPIKey("your-api-key"),
//	    boardclient.WithTimeout(30*time.Second),
//	)
package boardclient
