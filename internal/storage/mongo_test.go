package storage

import (
	"context"
	"os"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestMongoStore_DocumentRoundTrip(t *testing.T) {
	codec, err := NewCodec()
	if err != nil {
		t.Fatalf("Ошибка создания кодека: %v", err)
	}
	defer codec.Close()
	s := &MongoStore{codec: codec}

	want := testBiota(0xFFFFFFF0, 0xA9B4)
	doc, err := s.toDoc(want)
	if err != nil {
		t.Fatalf("toDoc: %v", err)
	}

	raw, err := bson.Marshal(doc)
	if err != nil {
		t.Fatalf("bson.Marshal: %v", err)
	}
	var back biotaDoc
	if err := bson.Unmarshal(raw, &back); err != nil {
		t.Fatalf("bson.Unmarshal: %v", err)
	}
	if back.Guid != int64(0xFFFFFFF0) || back.Landblock != 0xA9B4 {
		t.Fatalf("Неверные ключи документа: %+v", back)
	}

	got, err := s.fromDoc(back)
	if err != nil {
		t.Fatalf("fromDoc: %v", err)
	}
	if got.Guid != want.Guid || got.Landblock != want.Landblock || got.Properties["color"] != "red" {
		t.Errorf("Снимок искажён: %+v", got)
	}
}

// Контракт на живом сервере: LANDBLOCK_TEST_MONGO_URI=mongodb://localhost:27017
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("LANDBLOCK_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("LANDBLOCK_TEST_MONGO_URI не задан")
	}
	codec, err := NewCodec()
	if err != nil {
		t.Fatalf("Ошибка создания кодека: %v", err)
	}
	store, err := NewMongoStore(context.Background(), MongoOptions{
		URI:        uri,
		Database:   "landblock_test",
		Collection: "biotas_" + t.Name(),
	}, codec)
	if err != nil {
		t.Fatalf("Не удалось подключиться к MongoDB: %v", err)
	}
	if err := store.collection.Drop(context.Background()); err != nil {
		t.Fatalf("Не удалось очистить коллекцию: %v", err)
	}
	runStoreContract(t, store)
}
