package config

const (
	StoreBackendInMemory = "inmemory"
	StoreBackendMongo    = "mongo"
)

type StoreConfig interface {
	GetStoreBackend() string
	GetMongoURI() string
	GetMongoDatabase() string
	GetRecordsCollection() string
}

type Store struct{}

var _ StoreConfig = Store{}

func (Store) GetStoreBackend() string {
	return GetEnv("STORE_BACKEND", StoreBackendInMemory)
}

func (Store) GetMongoURI() string {
	return GetEnv("MONGO_URI", "mongodb://localhost:27017")
}

func (Store) GetMongoDatabase() string {
	return GetEnv("MONGO_DATABASE", "authclient")
}

func (Store) GetRecordsCollection() string {
	return GetEnv("RECORDS_COLLECTION", "records")
}
