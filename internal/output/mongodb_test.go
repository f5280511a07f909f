// internal/output/mongodb_test.go
package output

import (
	"context"
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestMongoFilter(t *testing.T) {
	filter := mongoFilter(Query{Make: "Mercedes-Benz", Dealer: "Example Motors", MinYear: 2015, MaxYear: 2020, MaxPrice: 40000})

	wantMake := bson.M{"$regex": `^Mercedes-Benz$`, "$options": "i"}
	if !reflect.DeepEqual(filter["make"], wantMake) {
		t.Errorf("Expected make %v, got %v", wantMake, filter["make"])
	}
	if filter["dealer.name"] != "Example Motors" {
		t.Errorf("Expected dealer filter, got %v", filter["dealer.name"])
	}
	if !reflect.DeepEqual(filter["year"], bson.M{"$gte": 2015, "$lte": 2020}) {
		t.Errorf("Unexpected year filter %v", filter["year"])
	}
	if !reflect.DeepEqual(filter["price"], bson.M{"$lte": 40000.0}) {
		t.Errorf("Unexpected price filter %v", filter["price"])
	}
	if _, ok := filter["model"]; ok {
		t.Error("Expected no model filter")
	}

	if len(mongoFilter(Query{})) != 0 {
		t.Error("Expected empty filter for empty query")
	}
}

func TestCaseInsensitive_QuotesPattern(t *testing.T) {
	got := caseInsensitive("C+ (AMG)")
	if got["$regex"] != `^C\+ \(AMG\)$` {
		t.Errorf("Expected quoted pattern, got %v", got["$regex"])
	}
}

func TestRecordDocument(t *testing.T) {
	rec := sampleRecord("https://Lot.test/vdp/1/", "Honda", "Accord", 2019, 21500)
	rec.Mileage = nil

	doc, err := recordDocument(rec)
	if err != nil {
		t.Fatalf("recordDocument failed: %v", err)
	}
	if doc[urlKeyField] != "https://lot.test/vdp/1" {
		t.Errorf("Expected canonical URL key, got %v", doc[urlKeyField])
	}
	if doc["source_url"] != rec.SourceURL {
		t.Errorf("Expected raw source URL kept, got %v", doc["source_url"])
	}
	if _, ok := doc["mileage"]; ok {
		t.Error("Expected missing mileage to be omitted")
	}
	if _, ok := doc["discovered_at"]; !ok {
		t.Error("Expected discovered_at in document")
	}
}

func TestDistinctStrings(t *testing.T) {
	got := distinctStrings([]interface{}{"Toyota", nil, "", int32(2019), "Honda"})
	want := []string{"2019", "Honda", "Toyota"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestNewMongoStore_Validation(t *testing.T) {
	tests := []MongoDBOptions{
		{Database: "cars", Collection: "vehicles"},
		{ConnectionString: "mongodb://localhost:27017", Collection: "vehicles"},
		{ConnectionString: "mongodb://localhost:27017", Database: "cars"},
	}
	for _, opts := range tests {
		if _, err := NewMongoStore(context.Background(), opts); err == nil {
			t.Errorf("Expected validation error for %+v", opts)
		}
	}
}
