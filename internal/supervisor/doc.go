// Package supervisor is an XML-RPC client for a local supervisord.
//
// The supervisor daemon exposes process control over HTTP on a unix domain
// socket. This package wraps the three calls the device needs: listing
// process states, starting a process, and stopping one. Summary flattens
// the listing into a single string suitable for a shadow report.
package supervisor
