package mailing

// Contact is a Brevo contact.
type Contact struct {
	ID      int64   `json:"id"`
	Email   string  `json:"email"`
	ListIDs []int64 `json:"listIds"`
}

// Folder is a Brevo contact folder.
type Folder struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Address is a named email address.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Email is a transactional message sent to each address in To separately.
type Email struct {
	Sender  Address
	ReplyTo *Address
	Subject string
	HTML    string
	To      []string
	Tags    []string
}

type createContactRequest struct {
	Email string `json:"email"`
}

type createListRequest struct {
	Name     string `json:"name"`
	FolderID int64  `json:"folderId"`
}

type listContactsRequest struct {
	IDs []int64 `json:"ids"`
}

type createdResponse struct {
	ID int64 `json:"id"`
}

type foldersResponse struct {
	Folders []Folder `json:"folders"`
	Count   int      `json:"count"`
}

type messageVersion struct {
	To []Address `json:"to"`
}

type emailRequest struct {
	Sender          Address          `json:"sender"`
	ReplyTo         *Address         `json:"replyTo,omitempty"`
	Subject         string           `json:"subject"`
	HTMLContent     string           `json:"htmlContent"`
	MessageVersions []messageVersion `json:"messageVersions"`
	Tags            []string         `json:"tags,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
