// Package tlsmaterial loads the server certificate and key and keeps
// them fresh.
//
// A Loader reads the PEM key pair once at startup and, when watching
// is enabled, reloads it on file changes so certificate rotation does
// not require a restart. The resulting tls.Config resolves the
// certificate per handshake through GetCertificate.
package tlsmaterial
