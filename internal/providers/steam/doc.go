// Package steam implements a metadata provider backed by the public Steam
// Store JSON endpoints (storesearch and appdetails).
//
// The store API carries less detail than dedicated game databases: the header
// image doubles as cover, categories become keywords, and the Metacritic
// score becomes the critic rating. Requests pass through a fixed-size
// bulkhead so concurrent scans cannot flood the store.
package steam
