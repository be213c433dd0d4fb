// Package httputil provides the JSON response helpers used by the trigger
// receiver so every endpoint answers with the same envelope.
package httputil
