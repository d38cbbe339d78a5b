// internal/adapters/out/firestore/favorites_repository_fs.go
package firestore

import (
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	favdom "storefront/internal/domain/favorite"
)

// FavoritesStoreFS implements favorite.Store using Firestore.
// - collection: favorites
// - docId: actor key
// - fields: productIds(array, sorted), updatedAt(server timestamp)
type FavoritesStoreFS struct {
	*documentStoreFS[favdom.Favorites]
}

func NewFavoritesStoreFS(client *firestore.Client) *FavoritesStoreFS {
	return &FavoritesStoreFS{&documentStoreFS[favdom.Favorites]{
		Client:     client,
		collection: "favorites",
		name:       "favorites",
		encode: func(f favdom.Favorites) any {
			return favoritesDoc{ProductIDs: f.Clone().ProductIDs}
		},
		decode: favoritesFromSnapshot,
	}}
}

type favoritesDoc struct {
	ProductIDs []string  `firestore:"productIds"`
	UpdatedAt  time.Time `firestore:"updatedAt,serverTimestamp"`
}

func favoritesFromSnapshot(id string, snap *firestore.DocumentSnapshot) (favdom.Favorites, error) {
	if snap == nil {
		return favdom.Favorites{}, errors.New("favorites_store_fs: snapshot is nil")
	}
	raw := snap.Data()
	if raw == nil {
		return favdom.Empty(id), nil
	}

	var ids []string
	for _, v := range asSlice(raw["productIds"]) {
		ids = append(ids, asString(v))
	}
	return favdom.New(id, ids), nil
}
