// Package services holds the application services between transport and the
// dataset pipeline. The dataset service owns the loaded table and serializes
// replacement; every read operation works against an immutable snapshot.
package services
