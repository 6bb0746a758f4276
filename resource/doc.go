// Package resource is a generic CRUD engine. One Definition binds a
// Collection, a Codec and an access policy for an entity type; Resource
// then serves list, retrieve, create, update and destroy for it.
//
// # Listing
//
// List accepts raw query parameters:
//
//	status=1,2          membership (status is "1" or "2")
//	exclude__status=3   negation
//	order_by=-schedule  ordering, "-" for descending, comma separated
//	top=20              offset; the page holding it is returned (counted mode)
//	page=2              overrides top as (page-1)*PageSize
//	top=5&bottom=15     explicit [top, bottom) range (range mode)
//
// Counted mode results carry num_pages and current_page; range mode results
// only carry total_count.
//
// # Caching
//
// With a cache backend and a CacheKeyPrefix, objects are cached under
// "<prefix>:object:<id>" and list results under "<prefix>:list:<fingerprint>".
// Every successful write drops the whole list namespace; update and destroy
// also replace or drop the object key.
//
// # Soft delete
//
// A Definition with SoftDeleteField hides flagged records from every read,
// and destroy sets the flag instead of removing the row. WithDeleted lifts
// the filter for one call.
//
// # Example
//
//	appointments, err := resource.New(resource.Definition[*Appointment]{
//		Collection:     collection,
//		Codec:          codec.NewJSON[*Appointment](),
//		FilterFields:   resource.NamedFields("status", "service_id"),
//		UpdateFields:   resource.NamedFields("status", "notes"),
//		CacheKeyPrefix: "appointments",
//	}, resource.WithCache(svc))
package resource
