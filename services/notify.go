package services

import (
	"context"
	"fmt"

	"dripapi/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"gorm.io/gorm"
)

func stringMapToInterfaceMap(stringMap map[string]string) map[string]interface{} {
	interfaceMap := make(map[string]interface{})
	for key, value := range stringMap {
		interfaceMap[key] = value
	}
	return interfaceMap
}

// SendNotification pushes to every active device token of the user. Failures
// are logged and swallowed, a lost push never fails the calling task.
func SendNotification(fbApp *firebase.App, db *gorm.DB, userId uint, title string, message string, customData map[string]string) {
	if fbApp == nil {
		fmt.Println("No firebase app configured, skip push: ", title)
		return
	}
	client, err := fbApp.Messaging(context.Background())
	if err != nil {
		fmt.Println("Error initing FB client", err)
		fmt.Println("Abort push: ", title)
		return
	}
	var tokens []models.UserPushToken
	result := db.Model(models.UserPushToken{}).Where(
		"user_account_id = ? and active = true", userId,
	).Find(&tokens)
	if result.Error != nil {
		fmt.Println("Error loading push tokens", result.Error)
		return
	}

	var messages []*messaging.Message
	var iosCustomData map[string]interface{}
	if customData != nil {
		iosCustomData = stringMapToInterfaceMap(customData)
	}
	for _, token := range tokens {
		fmt.Println("Push notification to token: ", token.Token, token.Platform, " ID:", token.ID, "User ID:", token.UserAccountID)
		messages = append(messages, &messaging.Message{
			Notification: &messaging.Notification{
				Title: title,
				Body:  message,
			},
			APNS: &messaging.APNSConfig{
				FCMOptions: &messaging.APNSFCMOptions{
					AnalyticsLabel: "dripsocial",
				},
				Payload: &messaging.APNSPayload{
					Aps: &messaging.Aps{
						ContentAvailable: true,
						Alert: &messaging.ApsAlert{
							Title: title,
							Body:  message,
						},
						Sound: "default",
					},
					CustomData: iosCustomData,
				},
			},
			Android: &messaging.AndroidConfig{
				Notification: &messaging.AndroidNotification{
					Priority:  messaging.AndroidNotificationPriority(messaging.PriorityMax),
					ChannelID: "dripsocial-high-priority",
				},
				Data: customData,
			},
			Token: token.Token,
		})
	}
	if len(messages) == 0 {
		return
	}
	br, err := client.SendEach(context.Background(), messages)
	if err != nil {
		fmt.Println("Error sending notifications", err)
		return
	}
	fmt.Println("Push Fails: ", br.FailureCount)
	for _, fail := range br.Responses {
		if fail != nil && !fail.Success {
			fmt.Println(fail.Error, fail.MessageID, fail.Success)
		}
	}
	fmt.Println("Notifications sent")
}
