// Package sync reconciles the local reading store with the per-user cloud
// replica.
//
// Overview
//
// Every device of a user writes readings locally and, on each sync cycle,
// pushes its unsynced rows to the replica and pulls the whole replica back.
// There is no coordinator and no cross-store transaction; correctness comes
// from two properties:
//
//   - Replica documents are keyed by the natural key
//     "{timestamp}_{deviceId}", so re-uploading overwrites instead of
//     duplicating.
//   - Local merges look rows up by the same natural key, so re-downloading
//     overwrites instead of inserting.
//
// A cycle interrupted at any point is therefore repaired by the next one.
//
// Architecture
//
//	  LocalStore ──Unsynced──► Uploader ──CommitBatch──► Replica
//	      ▲                                               │
//	      └──MergeBatch──── Downloader ◄──ListReadings────┘
//
//	Engine: Idle ⇄ Syncing, one cycle at a time
//
// Usage
//
//	engine := sync.NewEngine(db, replica, session, sync.Config{
//	    Registry: registry,
//	})
//	res, err := engine.Sync(ctx, userID)
//	if err != nil {
//	    // Unauthorized or a transport failure
//	}
//	fmt.Printf("up=%d down=%d\n", res.Uploaded, res.Downloaded)
//
// Error handling
//
// Errors are classified by Classify. NotFound and PermissionDenied from the
// replica mean "this user has never synced" and are absorbed, as are local
// storage failures (logged; the next cycle retries). Unauthorized and
// transient transport errors are returned to the caller, joined when both
// phases fail.
package sync
