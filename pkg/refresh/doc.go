// Package refresh reloads the key registry outside the request path.
//
// # Overview
//
// Two complementary triggers call a Refresher (normally
// *keypool.Pool):
//
//   - Scheduler reloads on a cron schedule or @every interval, so the
//     pool eventually converges with the key database even when file
//     notifications are unavailable.
//   - Watcher reloads shortly after the key database file changes on
//     disk, collapsing SQLite's bursty multi-file writes through a
//     Debouncer.
//
// # Usage
//
//	sched := refresh.NewScheduler(pool, refresh.SchedulerConfig{
//		Schedule: "@every 5m",
//		Logger:   logger,
//	})
//	if err := sched.Start(); err != nil {
//		return err
//	}
//	defer sched.Stop()
//
//	watcher, err := refresh.NewWatcher(pool, refresh.WatcherConfig{
//		Path:   store.Path(),
//		Logger: logger,
//	})
//	if err != nil {
//		return err
//	}
//	if err := watcher.Start(); err != nil {
//		return err
//	}
//	defer watcher.Stop()
//
// # Thread Safety
//
// Scheduler, Watcher, and Debouncer are safe for concurrent use.
// Reload outcomes are logged and counted by the pool's own metrics;
// a failed reload leaves the previous registry serving.
package refresh
