// Package fanout implements driven.Fanout.
//
// Memory delivers within one process. Redis uses pub/sub with one channel
// per document so several relay instances behind a load balancer see each
// other's messages.
package fanout
