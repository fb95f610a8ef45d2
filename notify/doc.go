// Package notify delivers one-time codes out of band.
//
// [SMTPMailer] sends a plain-text email per code over STARTTLS.
// [QueuedNotifier] puts codes on a capped Redis list and drains them into an
// inner Notifier from a worker goroutine, so issuing a code never waits on
// the mail server. [Nop] discards codes.
//
// Queued jobs hold the plaintext code until the worker pops them; the queue
// should live on the same trusted Redis as the code store.
package notify
