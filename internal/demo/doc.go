// Package demo is a self-contained campus simulation: students wander
// between waypoints, players hire staff and watch their balance move
// with the day cycle. It implements the complete authoritative-game
// surface the sync server drives, and Mirror implements the client
// half, so a full session runs end to end with nothing else attached.
//
// The serve command runs a campus when a project has no game of its
// own, and the load benchmarks use World and Mirror as both ends of
// their sessions.
//
//	session := demo.NewSession(demo.Config{})
//	srv, err := server.New(server.Config{
//		Factory:  session.Factory(),
//		Requests: session.Requests(),
//	})
//
// Campus commands are built with HireCommand, DismissCommand and
// CheerCommand; hiring can be rejected when the balance is short, which
// exercises the server's command rollback path.
package demo
