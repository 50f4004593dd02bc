// Package batch splits purge objects into request-sized chunks.
//
// The Fast Purge API rejects request bodies larger than 50,000 bytes. Split
// first cuts the object list into runs of at most MaxObjects items, then
// halves any run whose encoded body reaches MaxPayload until every chunk fits
// or holds a single object.
//
// Example usage:
//
//	chunks, err := batch.Split(urls, batch.DefaultLimits(), false)
//	for _, c := range chunks {
//		submit(c.Body)
//	}
//
// Object order is kept: concatenating every chunk's Objects yields the input.
package batch
