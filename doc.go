/*
Package piecesync lets consumers make blocking, random-access reads of torrent content that an
asynchronous transfer engine is downloading out of order.

The Coordinator owns the engine handle and a single AlertPump goroutine, which is the only reader of
the engine's alert queue. Consumers block in WaitForMetadata, WaitForPiece and ReadPiece on
per-torrent and per-piece waiters that the pump signals as alerts arrive. Piece bytes are held by
the engine in a storage.Contract, such as the in-memory storage.Transient.

	c := piecesync.NewCoordinator(engine, piecesync.NewDefaultConfig())
	defer c.Close()
	h, err := c.AddTorrentAndWait(ctx, magnetLink)
	...
	n, err := c.ReadPiece(ctx, h, piece, 0, len(buf), buf)
*/
package piecesync
