// Package mongo implements the task store using the MongoDB driver.
// Owner exclusivity rides on a partial unique index over active documents,
// and claiming uses FindOneAndUpdate so concurrent workers never take the
// same task.
//
// The caller owns the client lifecycle -- mongo never disconnects it. Pass
// the database handle through the constructor:
//
//	import (
//	    mongod "go.mongodb.org/mongo-driver/v2/mongo"
//	    "go.mongodb.org/mongo-driver/v2/mongo/options"
//	    "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/store/mongo"
//	)
//
//	client, _ := mongod.Connect(options.Client().ApplyURI(uri))
//	store := mongo.New(client.Database("vedfolnir"))
//	store.Migrate(ctx)
package mongo
