package pubsub

import (
	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func EncodeNotification(notification models.RawNotification) ([]byte, error) {
	return json.Marshal(notification)
}

func DecodeNotification(data []byte) (models.RawNotification, error) {
	var out models.RawNotification
	err := json.Unmarshal(data, &out)
	return out, err
}
