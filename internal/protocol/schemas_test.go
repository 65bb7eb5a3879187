package protocol

import (
	"errors"
	"testing"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	v, err := LoadSchemas()
	if err != nil {
		t.Fatalf("LoadSchemas: %v", err)
	}
	if len(v.Names()) != 10 {
		t.Fatalf("schemas: %v", v.Names())
	}

	valid := map[string]string{
		SchemaRegister:   `{"name":"wanderer_01","description":"writes about rivers"}`,
		SchemaAgentPatch: `{"description":"new bio"}`,
		SchemaPersona: `{
		  "displayName":"Fatou Diallo",
		  "birthPlace":{"city":"Kedougou","country":"Senegal","coordinates":[12.55,-12.17],"placeDescription":"market town"},
		  "birthDate":"1983-04-12",
		  "lifeFramework":[{"ageStart":0,"ageEnd":7,"location":"Kedougou, Senegal","keyEvents":["born in mango season"]}]
		}`,
		SchemaFramework: `{
		  "lifeFramework":[{"ageStart":0,"ageEnd":30,"location":"Dakar","keyEvents":[]}],
		  "reason":"crossed paths","attractedToAgent":"AgentX"
		}`,
		SchemaLifeDay: `{
		  "fictionalDate":"2007-03-14","fictionalAge":23,
		  "location":{"city":"Saint-Louis","country":"Senegal","coordinates":[16.01,-16.48]},
		  "narrative":"I hung laundry.","photo":{"searchQuery":"Senegal Saint-Louis waterfront"},
		  "thoughtBubble":"Tired.","interactions":[{"withAgentName":"AgentX","description":"saw a photo","isAttraction":false}],
		  "isTrajectoryDeviation":false,"deviationContext":null
		}`,
		SchemaIntersection: `{
		  "otherAgent":"AgentX","initiatingLifeDayId":"a","otherLifeDayId":"b",
		  "fictionalDateApprox":"Spring 2001","location":"Saint-Louis","type":"coincidental","narrative":"both there"
		}`,
		SchemaSettings:  `{"flickrApiKey":null}`,
		SchemaGeocode:   `{"city":"Kedougou","country":"Senegal"}`,
		SchemaSubscribe: `{"type":"SUBSCRIBE","protocol_version":"1.0","agents":["AgentX"]}`,
	}
	for name, body := range valid {
		if err := v.Validate(name, []byte(body)); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
}

func TestSchemas_RejectInvalid(t *testing.T) {
	v, err := LoadSchemas()
	if err != nil {
		t.Fatalf("LoadSchemas: %v", err)
	}
	invalid := []struct {
		schema, body, code string
	}{
		{SchemaRegister, `{"name":"has space"}`, ErrValidation},
		{SchemaRegister, `{"name":`, ErrBadRequest},
		{SchemaIntersection, `{"otherAgent":"x","initiatingLifeDayId":"a","otherLifeDayId":"b","fictionalDateApprox":"1999","location":"x","type":"romantic","narrative":"n"}`, ErrValidation},
		{SchemaLifeDay, `{"fictionalDate":"2007-03-14","fictionalAge":23,"location":{"city":"X"},"narrative":"n","photo":{},"thoughtBubble":"t"}`, ErrValidation},
		{SchemaLifeDay, `{"fictionalDate":"2007-03-14","fictionalAge":23,"location":{"city":"X","coordinates":[95,0]},"narrative":"n","photo":{"searchQuery":"q"},"thoughtBubble":"t"}`, ErrValidation},
		{SchemaFramework, `{"lifeFramework":[],"reason":"r","attractedToAgent":"a"}`, ErrValidation},
		{SchemaGeocode, `{"country":"France"}`, ErrValidation},
	}
	for _, tc := range invalid {
		err := v.Validate(tc.schema, []byte(tc.body))
		var pe *Error
		if !errors.As(err, &pe) {
			t.Fatalf("%s %s: expected *Error, got %v", tc.schema, tc.body, err)
		}
		if pe.Code != tc.code {
			t.Fatalf("%s: code=%s want %s", tc.schema, pe.Code, tc.code)
		}
		if pe.Hint == "" {
			t.Fatalf("%s: empty hint", tc.schema)
		}
	}
	if err := v.Validate("nope", []byte(`{}`)); err == nil {
		t.Fatalf("unknown schema should error")
	}
}
