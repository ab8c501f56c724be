package mongostore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestSplitID_SeparatesIDFromFields(t *testing.T) {
	doc := bson.M{"_id": "P1", "name": "Ada", "years_experience": 12}
	id, fields := splitID(doc)
	assert.Equal(t, "P1", id)
	assert.Equal(t, "Ada", fields["name"])
	assert.NotContains(t, fields, "_id")
}

func TestSplitID_NilDoc(t *testing.T) {
	id, fields := splitID(nil)
	assert.Equal(t, "", id)
	assert.Nil(t, fields)
}

func TestSplitID_NonStringID(t *testing.T) {
	doc := bson.M{"_id": 42, "name": "Ada"}
	id, fields := splitID(doc)
	assert.Equal(t, "", id, "a non-string _id (e.g. an ObjectID) is not a usable row id here")
	assert.Equal(t, "Ada", fields["name"])
}
