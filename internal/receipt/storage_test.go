package receipt

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tempDir string
		storage *LocalStorage
		err     error
	)

	BeforeEach(func() {
		tempDir, err = os.MkdirTemp("", "receipt-scanner-storage-*")
		Expect(err).NotTo(HaveOccurred())
		storage, err = NewLocalStorage(tempDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Save", func() {
		It("writes the file and returns its name", func() {
			path, err := storage.Save("receipt.png", []byte("data"))
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal("receipt.png"))

			content, err := os.ReadFile(filepath.Join(tempDir, "receipt.png"))
			Expect(err).NotTo(HaveOccurred())
			Expect(content).To(Equal([]byte("data")))
		})

		It("keeps files inside the base directory", func() {
			path, err := storage.Save("../escape.png", []byte("data"))
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal("escape.png"))
			Expect(filepath.Join(tempDir, "escape.png")).To(BeAnExistingFile())
		})
	})

	Describe("Get", func() {
		It("returns the saved data", func() {
			_, err := storage.Save("receipt.png", []byte("data"))
			Expect(err).NotTo(HaveOccurred())

			data, err := storage.Get("receipt.png")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("data")))
		})

		It("returns an error for missing files", func() {
			_, err := storage.Get("missing.png")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Delete", func() {
		It("removes the file", func() {
			_, err := storage.Save("receipt.png", []byte("data"))
			Expect(err).NotTo(HaveOccurred())

			Expect(storage.Delete("receipt.png")).To(Succeed())
			Expect(filepath.Join(tempDir, "receipt.png")).NotTo(BeAnExistingFile())
		})

		It("returns an error for missing files", func() {
			Expect(storage.Delete("missing.png")).NotTo(Succeed())
		})
	})
})
