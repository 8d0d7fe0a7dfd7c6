/*
Package cli provides command-line interface utilities for Keywarden.

The cli package includes output formatters, progress reporters, and common
CLI helpers used by the keywarden command.

Output Formatting:

Commands support multiple output formats (text, JSON, CSV) for displaying
results:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, statuses); err != nil {
		return err
	}

CSV formatting operates on [][]string rows; commands convert their records
to rows and set Headers on the formatter.

Progress Reporting:

For long-running operations such as pool simulation, use the progress
reporter:

	progress := cli.NewProgressReporter(os.Stdout)
	progress.Start(totalRequests)
	for i := 0; i < totalRequests; i++ {
		// Do work
		progress.Update(int64(i + 1))
	}
	progress.Finish()

Signal Handling:

SetupSignalHandler returns a context canceled on SIGINT or SIGTERM so
commands can shut down cleanly.
*/
package cli
