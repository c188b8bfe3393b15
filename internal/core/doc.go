// Package core runs catalog translation jobs.
//
// A job exports a channel's product text to CSV for one target locale, or
// imports an edited CSV back into the store. Jobs are queued by the web
// layer and picked up by [Service.ProcessPending], either from the trigger
// endpoint or from the background poller started by [Service.StartPoller].
//
// # Job Lifecycle
//
// Status only moves forward:
//
//	pending -> processing -> completed | failed
//
// A pass lists pending jobs and runs them one at a time. Each job is first
// claimed with a conditional update, so when two processes poll the same
// database only one of them runs a given job; the other counts it as
// skipped. Completed and failed jobs are never touched again.
//
// # Import
//
// The uploaded file is parsed with csvcodec, each record is mapped to
// upstream mutations by catalog.FromRecord, and the records are written in
// paced chunks by the batch package. Rows that fail to parse, map or write
// become [TranslationError] rows typed by [ClassifyError]. With the default
// [RecordAndContinue] policy the job still completes; [FailJob] fails it.
//
// # Export
//
// The channel's product ids are listed, each product's default and target
// locale content is read in paced chunks, and the result is written to the
// blob store as exports/<store>/<job>.csv. A product that cannot be read
// keeps its row with only the id filled in.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError]. Each
// category has a code for support reference:
//
//   - JOB001-JOB007: Job setup (credentials, source file, busy, request, locale)
//   - CSV001-CSV004: File format
//   - VAL001-VAL003: Record validation
//   - API001-API003: Upstream API
//   - SYS001-SYS003: Infrastructure
//   - ERR000: Unknown
package core
