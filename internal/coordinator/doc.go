// Package coordinator schedules periodic reads of one thermo-hygrometer and caches the
// latest successful snapshot.
//
// A failed cycle never clears the cache: entities keep serving the last good values and
// the failure is surfaced through Health and the Reporter. Successful cycles replace the
// cached snapshot atomically and fan out an Update to every subscriber.
package coordinator
