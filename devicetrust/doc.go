// Package devicetrust persists "remember this device" records in Redis.
//
// A trust record lets a device skip the MFA step for a bounded period. The
// record is bound to the hash of the client fingerprint and to the exact
// user agent observed when trust was granted; either changing voids the
// bypass. Each user holds a bounded number of trusted devices and the oldest
// record is evicted when the cap is exceeded.
package devicetrust
